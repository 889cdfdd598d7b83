package storage

import (
	"fmt"

	"github.com/Epistemic-Technology/docextract/models"
)

// ResourceScheme is the URI scheme stored documents are served under.
const ResourceScheme = "extraction"

// CalculateResourcePaths generates the resource URIs available for a stored
// document: the whole document, plus the first and last extraction and the
// template for any extraction when it has any.
func CalculateResourcePaths(doc *models.AnnotatedDocument) []string {
	resourcePaths := []string{
		fmt.Sprintf("%s://%s", ResourceScheme, doc.ID),
	}

	if n := len(doc.Extractions); n > 0 {
		resourcePaths = append(resourcePaths, fmt.Sprintf("%s://%s/extractions/0", ResourceScheme, doc.ID))
		if n > 1 {
			resourcePaths = append(resourcePaths, fmt.Sprintf("%s://%s/extractions/%d", ResourceScheme, doc.ID, n-1))
		}
		resourcePaths = append(resourcePaths, fmt.Sprintf("%s://%s/extractions/{index}", ResourceScheme, doc.ID))
	}

	return resourcePaths
}
