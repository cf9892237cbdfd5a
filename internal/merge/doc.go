// Package merge combines upstream records with locally curated override rows.
//
// One SourceRecord fans out to one MergedRecord per override row sharing its
// identifier, or to a single pass-through record when there are none.
// Non-empty override fields replace upstream values; which columns take part
// is controlled by a FieldSet. Manual-override flags are always carried
// through untouched.
package merge
