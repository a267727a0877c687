package version

import "fmt"

var (
	App       string = "FormPilot"
	Version   string
	GitCommit string
	BuildTime string
)

// PrintVersion prints the version information
func PrintVersion() {
	fmt.Printf("%s version %s\n", App, Get())
	if GitCommit != "" {
		fmt.Printf("Git commit: %s\n", getShortCommit())
	}
	if BuildTime != "" {
		fmt.Printf("Build time: %s\n", BuildTime)
	}
}

func getShortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// Get returns the build version, "dev" when unset.
func Get() string {
	if Version != "" {
		return Version
	}
	return "dev"
}
