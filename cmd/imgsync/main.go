package main

import "github.com/aweris/imgsync/cmd/imgsync/cmd"

func main() {
	cmd.Execute()
}
