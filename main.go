package main

import "github.com/shaharia-lab/tag-backend/cmd"

func main() {
	cmd.Execute()
}
