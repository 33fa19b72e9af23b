package main

import "github.com/jordanmatta/recollect/internal/cli"

func main() {
	cli.Execute()
}
