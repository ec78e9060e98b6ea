// Package logging configures log/slog for knxtest.
//
// Every entry carries service=knxtest and the build version. CI runs
// usually want format "json"; interactive runs "text" on stderr so the
// report on stdout stays clean. Output "file" rotates through lumberjack:
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: text       # json, text
//	  output: file       # stdout, stderr, file
//	  file:
//	    path: /var/log/knxtest/knxtest.log
//	    max_size: 10     # MB
//	    max_backups: 5
//	    max_age: 28      # days
//
// Components take a child logger:
//
//	log := logging.New(cfg.Logging, version)
//	defer log.Close()
//	devLog := log.With("component", "device")
package logging
