package main

import "os"

// resolveCwd returns cwd if set, else the process's working directory.
func resolveCwd(cwd string) string {
	if cwd != "" {
		return cwd
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
