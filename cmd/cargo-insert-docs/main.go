// Command cargo-insert-docs keeps feature docs, crate docs and the readme of
// a Rust crate in sync. It is usually run as `cargo insert-docs`.
package main

import (
	"os"

	"github.com/jcdickinson/insertdocs/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
