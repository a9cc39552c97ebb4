package ibs

import (
	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/ValentinKolb/ibs/lib/engine"
	vm "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// dbMetrics holds the metrics of one DB. Counters are process wide
// (Prometheus, labelled by database), distributions are per DB.
type dbMetrics struct {
	db       string
	registry *common.Registry

	upgrades       *vm.Counter
	openFailed     *vm.Counter
	listenerPanics *vm.Counter

	batchSize  gometrics.Histogram
	readTimer  gometrics.Timer
	writeTimer gometrics.Timer
}

func newDBMetrics(db string) *dbMetrics {
	r := common.NewRegistry()
	return &dbMetrics{
		db:             db,
		registry:       r,
		upgrades:       common.Counter("ibs_upgrades_total", "db", db),
		openFailed:     common.Counter("ibs_open_failures_total", "db", db),
		listenerPanics: common.Counter("ibs_listener_panics_total", "db", db),
		batchSize:      r.Histogram("batch_size"),
		readTimer:      r.Timer("read_tx"),
		writeTimer:     r.Timer("write_tx"),
	}
}

func (m *dbMetrics) transactions(store string, mode engine.Mode) *vm.Counter {
	return common.Counter("ibs_transactions_total", "db", m.db, "store", store, "mode", mode.String())
}

func (m *dbMetrics) items(store string, action Action, ok bool) *vm.Counter {
	result := "ok"
	if !ok {
		result = "failed"
	}
	return common.Counter("ibs_items_total", "db", m.db, "store", store, "action", string(action), "result", result)
}

// --------------------------------------------------------------------------
// Stats
// --------------------------------------------------------------------------

// StoreStats are the counters of one store
type StoreStats struct {
	ReadTransactions  uint64 `json:"readTransactions" yaml:"readTransactions"`
	WriteTransactions uint64 `json:"writeTransactions" yaml:"writeTransactions"`
	ItemsOK           uint64 `json:"itemsOk" yaml:"itemsOk"`
	ItemsFailed       uint64 `json:"itemsFailed" yaml:"itemsFailed"`
}

// Stats describes a DB
type Stats struct {
	Name           string                    `json:"name" yaml:"name"`
	Version        uint64                    `json:"version" yaml:"version"`
	Upgrades       uint64                    `json:"upgrades" yaml:"upgrades"`
	ListenerPanics uint64                    `json:"listenerPanics" yaml:"listenerPanics"`
	Stores         map[string]StoreStats     `json:"stores" yaml:"stores"`
	Distributions  map[string]common.Summary `json:"distributions" yaml:"distributions"`
}

// Stats returns a snapshot of the metrics of the DB.
func (db *DB) Stats() Stats {
	m := db.metrics
	stats := Stats{
		Name:           db.desc.Name,
		Version:        db.Version(),
		Upgrades:       m.upgrades.Get(),
		ListenerPanics: m.listenerPanics.Get(),
		Stores:         make(map[string]StoreStats, len(db.desc.Stores)),
		Distributions:  m.registry.Summaries(),
	}
	for _, name := range db.desc.storeNames() {
		s := StoreStats{
			ReadTransactions:  m.transactions(name, engine.ReadOnly).Get(),
			WriteTransactions: m.transactions(name, engine.ReadWrite).Get(),
		}
		for _, action := range []Action{ActionAdd, ActionUpdate, ActionDelete, ActionClear} {
			s.ItemsOK += m.items(name, action, true).Get()
			s.ItemsFailed += m.items(name, action, false).Get()
		}
		stats.Stores[name] = s
	}
	return stats
}
