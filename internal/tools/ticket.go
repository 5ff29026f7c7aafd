package tools

import (
	"context"
	"log"
	"strings"
)

// TicketPriceTool is the name the model uses to ask for a fare.
const TicketPriceTool = "getTicketPrice"

// UnknownPrice is returned for cities without a fare.
const UnknownPrice = "unknown"

// PriceLookup resolves a return-ticket price for a city. Implementations
// normalize the city themselves; ok is false when no fare is known.
type PriceLookup interface {
	Price(ctx context.Context, city string) (price string, ok bool, err error)
}

// StaticPrices is an in-memory fare table keyed by lower-case city.
type StaticPrices map[string]string

// DefaultPrices is the fare table used when no database is configured.
func DefaultPrices() StaticPrices {
	return StaticPrices{
		"london": "$799",
		"paris":  "$899",
		"tokyo":  "$1400",
	}
}

func (p StaticPrices) Price(_ context.Context, city string) (string, bool, error) {
	price, ok := p[strings.ToLower(strings.TrimSpace(city))]
	return price, ok, nil
}

// TicketPrice builds the getTicketPrice tool over the given fare source.
func TicketPrice(prices PriceLookup) Tool {
	return Tool{
		Name:        TicketPriceTool,
		Description: "Get the price of a return ticket to the destination city. Call this whenever you need to know the ticket price, for example when a customer asks 'How much is a ticket to this city'",
		Schema: Schema{
			Properties: map[string]Property{
				"destinationCity": {Type: "string", Description: "The city that the customer wants to travel to"},
			},
			Required: []string{"destinationCity"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			city, _ := args["destinationCity"].(string)
			price, ok, err := prices.Price(ctx, city)
			if err != nil {
				return "", err
			}
			if !ok {
				return UnknownPrice, nil
			}
			return price, nil
		},
	}
}

// NewDefaultRegistry returns a registry holding the builtin tools.
func NewDefaultRegistry(prices PriceLookup, logger *log.Logger) *Registry {
	r := NewRegistry(logger)
	_ = r.Register(TicketPrice(prices))
	return r
}
