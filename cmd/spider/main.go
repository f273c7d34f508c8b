// Package main provides the entry point for the spider CLI.
//
// spider downloads the images of a website. It starts at one URL, saves
// every image the page references and, with -r, follows links on the same
// host up to a maximum depth.
//
// Usage:
//
//	spider [-r] [-l depth] [-p path] <url>
//
// See --help for all available options.
package main

// main is the entry point for spider.
func main() {
	Execute()
}
