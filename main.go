package main

import "github.com/ValentinKolb/dMap/cmd"

func main() {
	cmd.Execute()
}
