package main

import "imagecull/cmd"

func main() {
	cmd.Execute()
}
