package main

import "github.com/ayusman/facultyid/internal/cli"

func main() {
	cli.Execute()
}
