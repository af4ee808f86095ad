package main

import "clinic-roomsync/internal/cli"

func main() {
	cli.Execute()
}
