package openrouter

// DefaultModel is the free model the enrichment prompt was tuned against.
const DefaultModel = "meta-llama/llama-3.2-3b-instruct:free"

// DefaultURL is the chat completions endpoint.
const DefaultURL = "https://openrouter.ai/api/v1/chat/completions"

const (
	systemRole = "system"
	userRole   = "user"

	systemPrompt = "You are a real estate guru."

	assessmentPrompt = `Based on the following JSON that I will give you in Portuguese from Portugal, reply only with a JSON with the following properties:
- url_id
- no_bedrooms
- no_bathrooms
- has_garage
- has_pool
- has_good_location
- location
- average_price
- average_sqr_meters
- average_price_per_sqr_meters
- sqr_meters
- price
- summary
- score

The properties should be calculated following these instructions:
- url_id is extracted from the provided JSON identifier
- no_bedrooms is extracted from the provided JSON
- no_bathrooms is extracted from the provided JSON
- has_garage is inferred from the provided JSON
- has_pool is inferred from the provided JSON
- has_good_location is inferred from the provided JSON
- location is extracted from the provided JSON
- average_price is inferred from the real estate market of the location in the output JSON, without taking the provided JSON into consideration
- average_sqr_meters is inferred from the real estate market of the location in the output JSON, without taking the provided JSON into consideration
- average_price_per_sqr_meters is average_price divided by average_sqr_meters, both from the output JSON
- sqr_meters is extracted from the provided JSON
- price is extracted from the provided JSON
- summary is a summary of the description and details of the provided JSON, at most 300 characters
- score aggregates every other property of the output JSON; 1 is the worst deal possible and 10 the deal of a lifetime

Always reply with just a JSON in English, with every value inside the JSON also in English, nothing else.

The provided JSON is:`
)
