// Command boundguard runs a supervised work loop behind the boundguard
// guards and inspects running instances.
package main

func main() {
	Execute()
}
