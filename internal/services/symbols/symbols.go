package symbols

import (
	"fmt"
	"strings"

	"SignalForge/internal/domain/models"
)

// Category groups instruments that behave alike.
type Category string

const (
	MegaCap  Category = "mega_cap"
	Meme     Category = "meme"
	ETF      Category = "etf"
	Crypto   Category = "crypto"
	Standard Category = "standard"
)

type info struct {
	name        string
	sector      string
	description string
	category    Category
}

var table = map[models.Instrument]info{
	"AAPL":  {"Apple Inc.", "Technology", "Designs consumer electronics, software and services including iPhone, Mac and the App Store.", MegaCap},
	"MSFT":  {"Microsoft Corporation", "Technology", "Develops Windows, Office and the Azure cloud platform.", MegaCap},
	"GOOGL": {"Alphabet Inc.", "Communication Services", "Parent of Google Search, YouTube, Android and Google Cloud.", MegaCap},
	"AMZN":  {"Amazon.com, Inc.", "Consumer Discretionary", "Operates the Amazon marketplace and Amazon Web Services.", MegaCap},
	"NVDA":  {"NVIDIA Corporation", "Technology", "Designs GPUs and accelerated computing platforms for gaming and data centers.", MegaCap},
	"META":  {"Meta Platforms, Inc.", "Communication Services", "Runs Facebook, Instagram, WhatsApp and Reality Labs.", MegaCap},
	"TSLA":  {"Tesla, Inc.", "Consumer Discretionary", "Manufactures electric vehicles and energy storage systems.", Standard},
	"AMD":   {"Advanced Micro Devices, Inc.", "Technology", "Designs CPUs, GPUs and adaptive chips.", Standard},
	"SPY":   {"SPDR S&P 500 ETF Trust", "ETF", "Tracks the S&P 500 index.", ETF},
	"QQQ":   {"Invesco QQQ Trust", "ETF", "Tracks the Nasdaq-100 index.", ETF},
	"GME":   {"GameStop Corp.", "Consumer Discretionary", "Specialty retailer of games and collectibles.", Meme},
	"AMC":   {"AMC Entertainment Holdings, Inc.", "Communication Services", "Operates movie theatres in the US and Europe.", Meme},

	"BTC/USD":  {"Bitcoin", "Cryptocurrency", "Decentralized digital currency secured by proof of work.", Crypto},
	"ETH/USD":  {"Ethereum", "Cryptocurrency", "Programmable blockchain for smart contracts.", Crypto},
	"SOL/USD":  {"Solana", "Cryptocurrency", "High-throughput proof of stake blockchain.", Crypto},
	"DOGE/USD": {"Dogecoin", "Cryptocurrency", "Community-driven cryptocurrency.", Crypto},
}

// Lookup returns company metadata for inst, or a generic record when unknown.
func Lookup(inst models.Instrument) models.CompanyMeta {
	base := strings.ToLower(inst.Base())
	meta := models.CompanyMeta{
		LogoPath: fmt.Sprintf("/logos/%s.png", base),
		IsCrypto: inst.IsCrypto(),
	}
	if in, ok := table[inst]; ok {
		meta.Name = in.name
		meta.Sector = in.sector
		meta.BusinessDescription = in.description
		return meta
	}
	if meta.IsCrypto {
		meta.Name = inst.Base()
		meta.Sector = "Cryptocurrency"
		meta.BusinessDescription = fmt.Sprintf("%s digital asset", inst.Base())
		return meta
	}
	meta.Name = inst.String()
	meta.Sector = "Equity"
	meta.BusinessDescription = fmt.Sprintf("%s common stock", inst)
	return meta
}

// CategoryOf classifies inst. Unknown crypto pairs are Crypto, unknown tickers Standard.
func CategoryOf(inst models.Instrument) Category {
	if in, ok := table[inst]; ok {
		return in.category
	}
	if inst.IsCrypto() {
		return Crypto
	}
	return Standard
}

// Watchlists splits a configured symbol list into equities and crypto pairs.
func Watchlists(equities, crypto []string) (eq []models.Instrument, cr []models.Instrument) {
	for _, s := range equities {
		if inst := models.Instrument(strings.ToUpper(strings.TrimSpace(s))); inst != "" && !inst.IsCrypto() {
			eq = append(eq, inst)
		}
	}
	for _, s := range crypto {
		if inst := models.Instrument(strings.ToUpper(strings.TrimSpace(s))); inst != "" && inst.IsCrypto() {
			cr = append(cr, inst)
		}
	}
	return eq, cr
}
