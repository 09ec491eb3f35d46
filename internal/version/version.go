package version

import "fmt"

// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/delivery/internal/version.version=v1.2.0"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, commit и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает commit, из которого собран бинарник.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// String форматирует сведения о сборке для логов и команды version.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
