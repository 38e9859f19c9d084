package main

import "github.com/gradewatch/gradewatch/cmd"

func main() {
	cmd.Execute()
}
