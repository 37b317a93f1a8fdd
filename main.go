package main

import "github.com/nextlevelbuilder/goconvo/cmd"

func main() {
	cmd.Execute()
}
