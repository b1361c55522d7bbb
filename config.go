package recommender

import "github.com/karelholub/article-recommender/internal/config"

// Config is set by the command line entry point before any command runs.
var Config *config.Config
