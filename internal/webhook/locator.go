package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LocatorFields are the response fields that may carry the result URL, in
// priority order.
var LocatorFields = []string{"sheetUrl", "url", "sheet_url", "googleSheetsUrl", "spreadsheetUrl"}

// LocatorHost must appear in a locator for it to be accepted.
const LocatorHost = "docs.google.com"

const missingLocatorPrefix = "N8N response does not contain a valid Google Sheets URL. "

// LocatorError explains why a response carried no usable locator.
type LocatorError struct {
	Message string
}

func (e *LocatorError) Error() string { return e.Message }

// ExtractLocator finds the result URL in an engine response. The body may be
// a single object or an array of objects; in an array the first element with
// an accepted locator wins.
func ExtractLocator(body []byte) (string, error) {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &LocatorError{Message: fmt.Sprintf("Failed to process n8n response: %v", err)}
	}

	switch v := payload.(type) {
	case []interface{}:
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				if loc, found := locatorFromObject(obj); found {
					return loc, nil
				}
			}
		}
		return "", &LocatorError{Message: missingLocatorPrefix +
			fmt.Sprintf("Response is an array with %d items, but none contain a spreadsheetUrl field. ", len(v)) +
			"Please ensure your n8n workflow includes the spreadsheetUrl in the response."}
	case map[string]interface{}:
		if loc, found := locatorFromObject(v); found {
			return loc, nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", &LocatorError{Message: missingLocatorPrefix +
			fmt.Sprintf("Response object contains fields: %s. ", strings.Join(keys, ", ")) +
			"Expected one of: sheetUrl, url, sheet_url, googleSheetsUrl, or spreadsheetUrl. " +
			`Please configure your n8n "Respond to Webhook" node to include the spreadsheetUrl in the response.`}
	default:
		return "", &LocatorError{Message: missingLocatorPrefix + fmt.Sprintf("Response is a JSON %s, expected an object or an array.", jsonKind(v))}
	}
}

func locatorFromObject(obj map[string]interface{}) (string, bool) {
	for _, field := range LocatorFields {
		s, ok := obj[field].(string)
		if ok && strings.Contains(s, LocatorHost) {
			return s, true
		}
	}
	return "", false
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
