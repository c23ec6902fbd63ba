// Command shelfscan scrapes product listings into a deduplicated
// store.
package main

import "github.com/shelfscan/shelfscan/cmd"

func main() {
	cmd.Execute()
}
