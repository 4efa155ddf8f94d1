package app

// Compiled-in modules. Each registers itself with core in init().
import (
	_ "github.com/voidKandy/espionox-sub001/modules/embedding/openai"
	_ "github.com/voidKandy/espionox-sub001/modules/memory/postgres"
	_ "github.com/voidKandy/espionox-sub001/modules/memory/sqlite"
	_ "github.com/voidKandy/espionox-sub001/modules/provider/anthropic"
	_ "github.com/voidKandy/espionox-sub001/modules/provider/openai"
)
