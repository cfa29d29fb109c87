// Package logger builds the zap logger shared by the panel services.
//
// Console output always goes to stderr: with the stdio transport stdout
// belongs to the MCP protocol. When logging.file is set, entries are also
// written there as JSON and the file is rotated by lumberjack.
//
//	log, err := logger.NewFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	log.Info("reload finished", zap.String("state", "applied"))
package logger
