// Package objectstore holds the bucket backends artifacts are uploaded to.
package objectstore

const (
	contentTypeZip = "application/zip"

	displayPrefixGCS = "storage-cloud-google-com"
	displayPrefixS3  = "s3-amazonaws-com"
)

// DisplayPrefix returns the human readable location prefix used in
// confirmation emails for the given driver.
func DisplayPrefix(driver string) string {
	switch driver {
	case "s3":
		return displayPrefixS3
	default:
		return displayPrefixGCS
	}
}
