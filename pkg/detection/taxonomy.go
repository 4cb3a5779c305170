package detection

// Taxonomy is a closed set of class labels.
type Taxonomy map[string]struct{}

// NewTaxonomy builds a taxonomy from labels.
func NewTaxonomy(labels ...string) Taxonomy {
	t := make(Taxonomy, len(labels))
	for _, l := range labels {
		t[l] = struct{}{}
	}
	return t
}

// Contains reports whether class is part of the taxonomy.
func (t Taxonomy) Contains(class string) bool {
	_, ok := t[class]
	return ok
}

// TargetClasses are the labels the perception loop reports: people and animals.
var TargetClasses = []string{
	"person", "dog", "cat", "bird", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe",
}

// DefaultTaxonomy returns the taxonomy of TargetClasses.
func DefaultTaxonomy() Taxonomy {
	return NewTaxonomy(TargetClasses...)
}

// COCOClasses contains the 80 COCO class names in model output order
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

var animals = NewTaxonomy("bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe")

// IsAnimal returns true if the class is an animal
func IsAnimal(className string) bool {
	return animals.Contains(className)
}

// IsPerson returns true if the class is a person
func IsPerson(className string) bool {
	return className == "person"
}
