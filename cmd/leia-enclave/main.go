// Command leia-enclave is a demo/development CLI around the LeiA core: it
// loads a YAML deployment document, bootstraps connection keys to
// protected modules, and exchanges one authenticated message over an
// in-process log-backed bus.
package main

func main() {
	Execute()
}
