// Package main implements the dao-query executable.
package main

import "github.com/nicolaslara/dao-contracts/dao-query/cmd"

func main() {
	cmd.Execute()
}
