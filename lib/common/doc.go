// Package common contains the ambient infrastructure shared by all packages:
//
//   - Logging: a dragonboat logger.Factory backed by logrus. Packages obtain
//     their logger with logger.GetLogger(name) at init time; InitLoggers
//     installs the factory and sets the level of every package logger.
//   - Metrics: Prometheus counters (VictoriaMetrics) and per-component
//     histograms/timers (go-metrics).
package common
