package main

import "github.com/ValentinKolb/ibs/cmd"

func main() {
	cmd.Execute()
}
