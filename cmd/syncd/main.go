package main

import "github.com/estiakahmed98/chatsync/cmd/syncd/cmd"

func main() {
	cmd.Execute()
}
