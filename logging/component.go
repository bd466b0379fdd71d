package logging

import (
	"slices"
	"strings"
)

// ComponentKey is the attribute each package attaches with
// logger.With(ComponentKey, name). The filter reads it.
const ComponentKey = "component"

// Components that log. A log spec may only name these.
const (
	Manager    = "manager"
	Launch     = "launch"
	Executor   = "executor"
	Exec       = "exec"
	Daemon     = "daemon"
	Poller     = "poller"
	Settings   = "settings"
	Flatfile   = "flatfile"
	SettingsDB = "settings-db"
)

var components = []string{Daemon, Exec, Executor, Flatfile, Launch, Manager, Poller, Settings, SettingsDB}

// Components returns the component names a log spec accepts, sorted.
func Components() []string {
	return slices.Clone(components)
}

func knownComponent(name string) bool {
	_, found := slices.BinarySearch(components, name)
	return found
}

func componentList() string {
	return strings.Join(components, ", ")
}
