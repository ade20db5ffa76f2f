package avatar3d

import (
	"math"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vrmLikeDocument = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0, 5]}],
  "nodes": [
    {"name": "Root", "children": [1]},
    {"name": "J_Bip_C_Head", "children": [2, 3, 4]},
    {"name": "J_Sec_Hair1_01", "children": [6], "rotation": [0.0, 0.5, 0.0, 0.8660254]},
    {"name": "J_Adj_L_FaceEye"},
    {"name": "Accessory"},
    {"name": "Face_(merged)baked", "mesh": 0, "skin": 0},
    {"name": "J_Sec_Hair1_02"}
  ],
  "skins": [{"joints": [1, 2, 3, 6]}],
  "meshes": [{
    "name": "FaceMesh",
    "primitives": [{"attributes": {}, "targets": [{}, {}, {}]}],
    "weights": [0, 0.25, 0],
    "extras": {"targetNames": ["Fcl_ALL_Joy", "Fcl_EYE_Close"]}
  }]
}`

func decodeDocument(t *testing.T, js string) *gltf.Document {
	t.Helper()
	var doc gltf.Document
	require.NoError(t, gltf.NewDecoder(strings.NewReader(js)).Decode(&doc))
	return &doc
}

func TestRigFromDocument(t *testing.T) {
	rig, err := RigFromDocument(decodeDocument(t, vrmLikeDocument))
	require.NoError(t, err)

	names := make([]string, len(rig.Joints))
	for i, j := range rig.Joints {
		names[i] = j.Name
	}
	// Depth first, parents first; non-skin nodes are not joints.
	assert.Equal(t, []string{"J_Bip_C_Head", "J_Sec_Hair1_01", "J_Sec_Hair1_02", "J_Adj_L_FaceEye"}, names)

	head := rig.Joint("J_Bip_C_Head")
	require.Len(t, head.Children, 2)
	assert.True(t, rig.Joint("J_Sec_Hair1_02").IsLeaf())

	hair := rig.Joint("J_Sec_Hair1_01")
	assert.InDelta(t, math.Pi/3, hair.Rotation[1], 1e-4)
	assert.InDelta(t, 0, hair.Rotation[0], 1e-4)

	require.Len(t, rig.Parts, 1)
	face := rig.Parts[0]
	assert.Equal(t, "Face_(merged)baked", face.Name)
	// Unnamed targets fall back to a positional name.
	assert.Equal(t, []string{"Fcl_ALL_Joy", "Fcl_EYE_Close", "target_2"}, face.ShapeNames())
	assert.InDelta(t, 0.25, face.Weight(1), 1e-6)
}

func TestRigFromDocumentBinds(t *testing.T) {
	rig, err := RigFromDocument(decodeDocument(t, vrmLikeDocument))
	require.NoError(t, err)

	b := Bind(rig, DefaultBindingConfig())
	assert.True(t, b.HasShape(ShapeJoy))
	assert.False(t, b.HasShape(ShapeSorrow))
	assert.Equal(t, "Fcl_EYE_Close", b.BlinkName())
	assert.Len(t, b.Hair(), 2)
	assert.Len(t, b.Eyes(), 1)
}

func TestRigFromDocumentWithoutScene(t *testing.T) {
	doc := decodeDocument(t, `{
	  "asset": {"version": "2.0"},
	  "nodes": [
	    {"name": "Arm", "children": [1]},
	    {"name": "Hand"}
	  ],
	  "skins": [{"joints": [0, 1]}]
	}`)
	rig, err := RigFromDocument(doc)
	require.NoError(t, err)
	require.Len(t, rig.Joints, 2)
	assert.Equal(t, "Arm", rig.Joints[0].Name)
	assert.Equal(t, "Hand", rig.Joints[0].Children[0].Name)
}

func TestRigFromDocumentEmpty(t *testing.T) {
	_, err := RigFromDocument(&gltf.Document{})
	assert.Error(t, err)
	_, err = RigFromDocument(nil)
	assert.Error(t, err)
}

func TestQuatToEulerIdentity(t *testing.T) {
	e := nodeEuler([4]float64{0, 0, 0, 1})
	assert.InDelta(t, 0, e.Len(), 1e-6)
}
