package main

import (
	"context"
	"wastemap-backend/cmd/wastemap-cli/commands"
	"wastemap-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)
	telemetry.SetupFromEnv(context.Background(), "wastemap-cli")
	commands.ExecuteContext(context.Background())
}
