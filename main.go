package main

import "github.com/apri1one/predict-arb-sub004/cmd"

func main() {
	cmd.Execute()
}
