package main

import "github.com/archsync/archsync-coordinator/cmd/archsyncd/cmd"

func main() {
	cmd.Execute()
}
