package datacommons

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Place types, in resolution priority order.
const (
	TypeCity   = "City"
	TypeCounty = "County"
)

// Candidate is a place that contains a resolved coordinate. Missing fields
// are empty strings.
type Candidate struct {
	DCID         string `json:"dcid"`
	DominantType string `json:"dominantType"`
}

// ResolveResponse is the typed shape of a /v2/resolve response.
type ResolveResponse struct {
	Entities []struct {
		Node       string      `json:"node"`
		Candidates []Candidate `json:"candidates"`
	} `json:"entities"`
}

// parse turns any supported payload into a gjson result: raw JSON as
// []byte, json.RawMessage or string, or any value that marshals to JSON
// (typed structs, nested maps). Unusable payloads parse as empty.
func parse(payload any) gjson.Result {
	switch p := payload.(type) {
	case nil:
		return gjson.Result{}
	case gjson.Result:
		return p
	case json.RawMessage:
		return gjson.ParseBytes(p)
	case []byte:
		return gjson.ParseBytes(p)
	case string:
		return gjson.Parse(p)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(b)
}

// CandidatesFrom normalizes a resolve payload into candidates. It accepts
// the full response (entities[0].candidates), a bare object with a
// candidates list, or the list itself, with either dominantType or
// dominant_type keys. It never fails; anything unrecognized yields nil.
func CandidatesFrom(payload any) []Candidate {
	root := parse(payload)

	var list gjson.Result
	switch {
	case root.IsArray():
		list = root
	case root.Get("entities").IsArray():
		list = root.Get("entities.0.candidates")
	default:
		list = root.Get("candidates")
	}
	if !list.IsArray() {
		return nil
	}

	var out []Candidate
	for _, item := range list.Array() {
		if !item.IsObject() {
			continue
		}
		dtype := item.Get("dominantType")
		if !dtype.Exists() {
			dtype = item.Get("dominant_type")
		}
		out = append(out, Candidate{
			DCID:         item.Get("dcid").String(),
			DominantType: dtype.String(),
		})
	}
	return out
}

// SelectCandidate picks the first City, else the first County, else the
// first candidate. Only the first candidate of each type is considered: when
// its dcid is empty the next tier is tried. It reports false for an empty
// list or when no tier yields a dcid.
func SelectCandidate(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	for _, want := range []string{TypeCity, TypeCounty} {
		for _, c := range candidates {
			if c.DominantType != want {
				continue
			}
			if c.DCID != "" {
				return c.DCID, true
			}
			break
		}
	}
	if candidates[0].DCID == "" {
		return "", false
	}
	return candidates[0].DCID, true
}

// ExtractMetrics flattens an observation payload to variable → latest value
// for one entity, reading
// byVariable[var].byEntity[dcid].orderedFacets[0].observations[0].value.
// Variables whose path does not fully resolve to a number are left out. An
// empty variables list takes every variable in the payload.
func ExtractMetrics(payload any, dcid string, variables []string) map[string]float64 {
	out := map[string]float64{}

	byVariable := parse(payload).Get("byVariable")
	if !byVariable.IsObject() {
		return out
	}
	vars := byVariable.Map()

	if len(variables) == 0 {
		for name := range vars {
			variables = append(variables, name)
		}
	}

	for _, name := range variables {
		entity, ok := vars[name].Get("byEntity").Map()[dcid]
		if !ok {
			continue
		}
		facets := entity.Get("orderedFacets").Array()
		if len(facets) == 0 {
			continue
		}
		obs := facets[0].Get("observations").Array()
		if len(obs) == 0 {
			continue
		}
		value := obs[0].Get("value")
		if value.Type != gjson.Number {
			continue
		}
		out[name] = value.Float()
	}
	return out
}
