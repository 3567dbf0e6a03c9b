// Package pagination drives cursor-based pagination over the upstream API.
//
// Each collection endpoint answers with a page of the form
//
//	{"info": {"count": 826, "pages": 42, "next": "...?page=2", "prev": null},
//	 "results": [...]}
//
// A Loader starts at page 0 of an endpoint and follows info.next until the
// server returns null. Pages are fetched on demand: Next fetches exactly one
// page, and the sequence returned by All only asks for the next page once the
// consumer has taken every record of the current one.
//
// Example usage:
//
//	loader := pagination.NewLoader(fetcher, "https://rickandmortyapi.com/api", record.KindEpisode)
//	for rec, err := range loader.All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(rec.RecordName())
//	}
//
// A next link that cannot be followed (malformed, not http(s), or pointing
// back at a page already visited) is a ProtocolError, never a silent end of
// the sequence.
package pagination
