// Package transcode converts a delimited byte stream into XML incrementally.
//
// A Converter wraps an io.Reader holding records separated by a record
// delimiter and fields separated by a field delimiter. Both delimiters are
// arbitrary byte sequences and are matched exactly; no quoting or unescaping
// is performed. The converter is itself an io.Reader: every Read produces only
// as much XML as is needed to satisfy the request and keeps the remainder
// buffered for the next call.
//
// The output has the shape
//
//	<?xml version="1.0" encoding="UTF-8"?><rows><row><f0><![CDATA[a]]></f0>...</row>...</rows>
//
// where "row" is the configured record name. Field content is embedded
// verbatim as CDATA, so content containing "]]>" yields invalid XML.
//
// A record is emitted only when it yields exactly one value per configured
// field name. Records with fewer included fields are dropped and counted in
// Stats. A trailing record without a final record delimiter is still emitted
// as long as at least one of its included fields was terminated by a field
// delimiter.
package transcode
