package classifier

// airportNames maps spoken airport and city names to IATA codes. Keys are
// uppercase with apostrophes removed, matched on one to three word windows.
var airportNames = map[string]string{
	// US airports
	"JOHN F KENNEDY": "JFK", "KENNEDY": "JFK", "NEW YORK": "JFK", "NEW YORK JFK": "JFK",
	"LOS ANGELES": "LAX", "LOS ANGELES INTERNATIONAL": "LAX",
	"CHICAGO": "ORD", "CHICAGO OHARE": "ORD", "OHARE": "ORD",
	"ATLANTA": "ATL", "HARTSFIELD": "ATL", "HARTSFIELD JACKSON": "ATL",
	"DALLAS": "DFW", "DALLAS FORT WORTH": "DFW",
	"DENVER": "DEN", "DENVER INTERNATIONAL": "DEN",
	"SAN FRANCISCO": "SFO",
	"SEATTLE": "SEA", "SEATAC": "SEA",
	"MIAMI": "MIA",
	"BOSTON": "BOS", "LOGAN": "BOS",
	"LA GUARDIA": "LGA", "LAGUARDIA": "LGA",
	"NEWARK": "EWR",
	"DULLES": "IAD", "WASHINGTON DULLES": "IAD",
	"REAGAN": "DCA", "RONALD REAGAN": "DCA",
	"PHOENIX": "PHX",
	"HOUSTON": "IAH",
	"ORLANDO": "MCO",
	"LAS VEGAS": "LAS",
	"MINNEAPOLIS": "MSP", "MINNEAPOLIS ST PAUL": "MSP",
	"DETROIT": "DTW",
	"PHILADELPHIA": "PHL",
	"CHARLOTTE": "CLT",
	"SAN DIEGO": "SAN",
	"PORTLAND": "PDX",

	// International airports
	"LONDON": "LHR", "LONDON HEATHROW": "LHR", "HEATHROW": "LHR",
	"PARIS": "CDG", "CHARLES DE GAULLE": "CDG",
	"FRANKFURT": "FRA",
	"AMSTERDAM": "AMS", "SCHIPHOL": "AMS",
	"HONG KONG": "HKG",
	"SYDNEY": "SYD",
	"TOKYO": "NRT", "NARITA": "NRT",
	"TORONTO": "YYZ",
	"MEXICO CITY": "MEX",
	"DUBAI": "DXB",
}

// knownCodes are the IATA codes in the directory. They are recognized in any
// letter case; other three-letter tokens only when typed in uppercase.
var knownCodes = func() map[string]bool {
	codes := make(map[string]bool)
	for _, code := range airportNames {
		codes[code] = true
	}
	return codes
}()

// notAirports are uppercase three-letter words that read as codes but are
// almost always English.
var notAirports = map[string]bool{
	"THE": true, "AND": true, "FOR": true, "ARE": true, "YOU": true, "HOW": true,
	"WHO": true, "WHY": true, "CAN": true, "GET": true, "ANY": true, "ALL": true,
	"NOT": true, "BUT": true, "OUT": true, "NOW": true, "NEW": true, "OLD": true,
	"ONE": true, "TWO": true, "TOP": true, "LOW": true, "FLY": true, "WAS": true,
	"HAS": true, "HAD": true, "HER": true, "HIS": true, "ITS": true, "OUR": true,
	"SHE": true, "MAY": true, "USE": true, "SEE": true, "WAY": true, "FEW": true,
	"BUY": true, "PAY": true, "SET": true, "PER": true, "VIA": true, "OFF": true,
	"YES": true, "LET": true, "PUT": true, "SAY": true, "TOO": true, "BIG": true,
	"END": true, "FAR": true, "OWN": true, "TRY": true, "ASK": true, "DAY": true,
	"AIR": true, "MAX": true, "MIN": true, "AVG": true, "LOS": true,
}

// LookupAirport resolves a spoken name or IATA code to a code.
func LookupAirport(name string) (string, bool) {
	tokens := tokenize(name)
	if len(tokens) == 0 {
		return "", false
	}
	if len(tokens) == 1 && knownCodes[tokens[0]] {
		return tokens[0], true
	}
	code, ok := airportNames[joinTokens(tokens)]
	return code, ok
}
