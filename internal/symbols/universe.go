package symbols

// Universe names a predefined symbol list
type Universe string

const (
	UniverseNifty50  Universe = "nifty50"
	UniverseFallback Universe = "fallback" // ten large caps, for quick checks
)

// GetUniverse returns the list of symbols for a given universe
func GetUniverse(u Universe) []string {
	switch u {
	case UniverseNifty50:
		return Nifty50Symbols
	case UniverseFallback:
		return FallbackSymbols
	default:
		return nil
	}
}

// FallbackSymbols is used when no other list can be obtained
var FallbackSymbols = []string{
	"RELIANCE", "TCS", "HDFCBANK", "INFY", "ICICIBANK",
	"HINDUNILVR", "ITC", "SBIN", "BHARTIARTL", "KOTAKBANK",
}

// Nifty50Symbols is the NIFTY 50 constituents (as of 2024)
var Nifty50Symbols = []string{
	// Financials
	"HDFCBANK", "ICICIBANK", "SBIN", "KOTAKBANK", "AXISBANK",
	"INDUSINDBK", "BAJFINANCE", "BAJAJFINSV", "HDFCLIFE", "SBILIFE", "SHRIRAMFIN",
	// Technology
	"TCS", "INFY", "HCLTECH", "WIPRO", "TECHM", "LTIM",
	// Energy & Utilities
	"RELIANCE", "ONGC", "BPCL", "NTPC", "POWERGRID", "COALINDIA",
	// Consumer
	"HINDUNILVR", "ITC", "NESTLEIND", "BRITANNIA", "TATACONSUM", "ASIANPAINT", "TITAN",
	// Autos
	"MARUTI", "M&M", "TATAMOTORS", "BAJAJ-AUTO", "EICHERMOT", "HEROMOTOCO",
	// Materials & Industrials
	"TATASTEEL", "JSWSTEEL", "HINDALCO", "ULTRACEMCO", "GRASIM", "LT", "BEL",
	"ADANIENT", "ADANIPORTS",
	// Healthcare
	"SUNPHARMA", "CIPLA", "DRREDDY", "APOLLOHOSP",
	// Telecom
	"BHARTIARTL",
}
