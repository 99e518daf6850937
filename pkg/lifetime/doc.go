/*
Package lifetime implements the Delete -> MayDelete -> Destroy retirement
protocol. In this module pkg/db uses it to retire deleted table
entries that are still referenced. See Manager for usage.
*/
package lifetime
