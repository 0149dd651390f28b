// The main package for the afd-harvester executable.
package main

import "github.com/JakeFAU/afd-harvester/cmd"

func main() {
	cmd.Execute()
}
