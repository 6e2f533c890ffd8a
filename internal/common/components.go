package common

const (
	ComponentIndexer     = "indexer"
	ComponentRunner      = "runner"
	ComponentScraper     = "scraper"
	ComponentClassifier  = "classifier"
	ComponentStorer      = "storer"
	ComponentWatermark   = "watermark"
	ComponentReindex     = "reindex"
	ComponentUnderlying  = "underlying"
	ComponentMaintenance = "maintenance"
	ComponentIntegrity   = "integrity"
)

var AllComponents = map[string]struct{}{
	ComponentIndexer:     {},
	ComponentRunner:      {},
	ComponentScraper:     {},
	ComponentClassifier:  {},
	ComponentStorer:      {},
	ComponentWatermark:   {},
	ComponentReindex:     {},
	ComponentUnderlying:  {},
	ComponentMaintenance: {},
	ComponentIntegrity:   {},
}
