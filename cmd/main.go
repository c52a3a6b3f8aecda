// Command restjin serves REST endpoints generated from database schemas.
package main

func main() {
	Cmd()
}
