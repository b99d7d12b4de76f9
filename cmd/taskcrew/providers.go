package main

// Worker transport blank imports. Each import registers an invoker factory
// under its transport name (worker.transport in the config).

import (
	_ "github.com/Strob0t/taskcrew/internal/adapter/nats"
	_ "github.com/Strob0t/taskcrew/internal/adapter/workerhttp"
)
