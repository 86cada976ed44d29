// Command nakama is the Go runtime plugin: build it with -buildmode=plugin and
// drop the .so into the Nakama modules directory.
package main

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"

	"bluff/internal/ports/nakama"
)

// InitModule is the symbol Nakama looks up when it loads the plugin.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	return nakama.InitModule(ctx, logger, db, nk, initializer)
}

// main is never called when loaded as a plugin; it lets `go build ./...` compile this package.
func main() {}
