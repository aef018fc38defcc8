/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/nebulasphere007-cell/MockZen/cmd"

func main() {
	cmd.Execute()
}
