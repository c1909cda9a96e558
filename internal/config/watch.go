package config

import (
	"context"
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it is written or recreated and hands the new
// Config to onChange. A reload that fails to parse or validate is logged and
// the previous config stays in effect. Watch returns when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Printf("config: watching %s", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// editors that save atomically rename over the file
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Printf("config: reload of %s failed, keeping previous config: %v", path, err)
				continue
			}

			log.Printf("config: reloaded %s", path)
			onChange(cfg)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}
