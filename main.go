package main

import "github.com/surge-downloader/localcopy/cmd"

func main() {
	cmd.Execute()
}
