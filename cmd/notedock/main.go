// ABOUTME: Entry point for the notedock command line client
// ABOUTME: Delegates to the cobra command tree in root.go

package main

func main() {
	Execute()
}
