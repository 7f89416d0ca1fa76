package converter

import (
	"fmt"
	"log"
	"sort"

	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/gltfutil"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
)

// buildSkeletonNodeNames derives hierarchical joint path names with a
// DFS of its own: paths must reflect the complete source hierarchy
// regardless of how the main traversal handled individual nodes.
func (c *gltfToScene) buildSkeletonNodeNames() {
	visited := map[int]bool{}
	var walk func(idx int, prefix string)
	walk = func(idx int, prefix string) {
		if idx < 0 || idx >= len(c.doc.Nodes) || visited[idx] {
			return
		}
		visited[idx] = true
		name := fmt.Sprintf("n%d", idx)
		if prefix != "" {
			name = prefix + "/" + name
		}
		c.skeletonNodeNames[idx] = name
		for _, ci := range c.doc.Nodes[idx].Children {
			walk(int(ci), name)
		}
	}
	for _, sc := range c.doc.Scenes {
		for _, root := range sc.Nodes {
			walk(int(root), "")
		}
	}
}

// restTransform is the joint-local rest pose: rotation and translation
// only, scale excluded.
func restTransform(node *scene.Node) *geom.Matrix4 {
	t, r, _ := nodeRest(node)
	return geom.NewTRSMatrix4(t, r, geom.NewVector3(1, 1, 1))
}

func nodeRest(node *scene.Node) (*geom.Vector3, *geom.Quaternion, *geom.Vector3) {
	if node.Matrix != nil {
		return node.Matrix.Decompose()
	}
	t := node.Translation
	if t == nil {
		t = geom.NewVector3(0, 0, 0)
	}
	r := node.Rotation
	if r == nil {
		r = geom.NewIdentityQuaternion()
	}
	s := node.Scale
	if s == nil {
		s = geom.NewVector3(1, 1, 1)
	}
	return t, r, s
}

func (c *gltfToScene) importSkeletons() {
	for si, skin := range c.doc.Skins {
		sk := c.s.Skeletons[si]
		jointCount := len(skin.Joints)
		sk.Joints = make([]string, jointCount)
		sk.JointNames = make([]string, jointCount)
		sk.RestTransforms = make([]*geom.Matrix4, jointCount)
		sk.BindTransforms = make([]*geom.Matrix4, jointCount)
		for ji, j := range skin.Joints {
			jointIndex := int(j)
			sk.RestTransforms[ji] = geom.NewMatrix4()
			sk.BindTransforms[ji] = geom.NewMatrix4()
			if jointIndex >= len(c.doc.Nodes) {
				// placeholder keeps the joint array aligned with the
				// inverse-bind-matrix accessor
				log.Printf("WARNING: joint index out of range: %d (skin: %d)", jointIndex, si)
				sk.Joints[ji] = fmt.Sprintf("bad_index_node_%d", jointIndex)
				sk.JointNames[ji] = fmt.Sprintf("Bad Index Node %d", jointIndex)
				continue
			}
			if path, ok := c.skeletonNodeNames[jointIndex]; ok {
				sk.Joints[ji] = path
			} else {
				sk.Joints[ji] = fmt.Sprintf("n%d", jointIndex)
			}
			sk.JointNames[ji] = c.nodeName(jointIndex)
			if dstIndex, ok := c.nodeMap[jointIndex]; ok {
				node := c.s.Nodes[dstIndex]
				node.IsJoint = true
				sk.RestTransforms[ji] = restTransform(node)
			}
		}
		c.importBindTransforms(skin, sk, si)
	}
}

func (c *gltfToScene) importBindTransforms(skin *gltf.Skin, sk *scene.Skeleton, si int) {
	if skin.InverseBindMatrices == nil {
		return
	}
	acc := c.accessor(*skin.InverseBindMatrices)
	if acc == nil || acc.Type != gltf.AccessorMat4 {
		log.Printf("WARNING: bad inverse bind matrix accessor (skin: %d)", si)
		return
	}
	if int(acc.Count) < len(skin.Joints) {
		log.Printf("WARNING: inverse bind matrix count %d < joint count %d (skin: %d)", acc.Count, len(skin.Joints), si)
		return
	}
	mats, err := gltfutil.ReadMat4(c.doc, acc)
	if err != nil {
		log.Printf("WARNING: cannot read inverse bind matrices (skin: %d): %v", si, err)
		return
	}
	for ji, j := range skin.Joints {
		if int(j) >= len(c.doc.Nodes) {
			continue
		}
		sk.BindTransforms[ji] = geom.NewMatrix4FromArray(mats[ji]).Inverse()
	}
}

func (c *gltfToScene) importAnimationTracks() {
	for i, a := range c.doc.Animations {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("anim_%d", i)
		}
		c.s.AddAnimationTrack(name)
	}
}

func (c *gltfToScene) importNodeAnimations() {
	for ti, a := range c.doc.Animations {
		track := c.s.AnimationTracks[ti]
		for _, ch := range a.Channels {
			c.importChannel(a, ch, ti, track)
		}
	}
	for _, t := range c.s.AnimationTracks {
		if t.HasTimepoints {
			c.s.HasAnimations = true
		}
	}
}

func nodeAnimationForTrack(node *scene.Node, trackIndex, trackCount int) *scene.NodeAnimation {
	if node.Animations == nil {
		node.Animations = make([]*scene.NodeAnimation, trackCount)
	}
	if node.Animations[trackIndex] == nil {
		node.Animations[trackIndex] = &scene.NodeAnimation{}
	}
	return node.Animations[trackIndex]
}

func (c *gltfToScene) importChannel(a *gltf.Animation, ch *gltf.Channel, trackIndex int, track *scene.AnimationTrack) {
	if ch.Sampler == nil || int(*ch.Sampler) >= len(a.Samplers) {
		log.Printf("WARNING: channel sampler out of range (track: %d)", trackIndex)
		return
	}
	sampler := a.Samplers[*ch.Sampler]
	if sampler.Input == nil || sampler.Output == nil {
		return
	}
	inAcc, outAcc := c.accessor(*sampler.Input), c.accessor(*sampler.Output)
	if inAcc == nil || outAcc == nil {
		return
	}
	if inAcc.Count == 0 || outAcc.Count == 0 {
		log.Printf("WARNING: empty animation sampler (track: %d)", trackIndex)
		return
	}
	if ch.Target.Node == nil {
		return
	}
	nodeIndex := int(*ch.Target.Node)
	dstIndex, ok := c.nodeMap[nodeIndex]
	if !ok {
		log.Printf("WARNING: animated node not in scene: %d (track: %d)", nodeIndex, trackIndex)
		return
	}
	times, err := gltfutil.ReadFloats(c.doc, inAcc)
	if err != nil || len(times) == 0 {
		log.Printf("WARNING: cannot read sampler input (track: %d): %v", trackIndex, err)
		return
	}
	anim := nodeAnimationForTrack(c.s.Nodes[dstIndex], trackIndex, len(c.s.AnimationTracks))
	switch ch.Target.Path {
	case gltf.TRSTranslation:
		values, err := gltfutil.ReadVec3(c.doc, outAcc)
		if err != nil || !appendSamples(&anim.Translations, times, values, vec3Of) {
			log.Printf("WARNING: bad translation samples for node %d (track: %d)", nodeIndex, trackIndex)
			return
		}
	case gltf.TRSRotation:
		values, err := gltfutil.ReadVec4(c.doc, outAcc)
		if err != nil || !appendSamples(&anim.Rotations, times, values, quatOf) {
			log.Printf("WARNING: bad rotation samples for node %d (track: %d)", nodeIndex, trackIndex)
			return
		}
	case gltf.TRSScale:
		values, err := gltfutil.ReadVec3(c.doc, outAcc)
		if err != nil || !appendSamples(&anim.Scales, times, values, vec3Of) {
			log.Printf("WARNING: bad scale samples for node %d (track: %d)", nodeIndex, trackIndex)
			return
		}
	default:
		log.Printf("WARNING: unsupported animation path %v (track: %d)", ch.Target.Path, trackIndex)
		return
	}
	min, max := times[0], times[0]
	for _, t := range times {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	track.ExtendTime(min, max)
}

func vec3Of(v [3]float32) geom.Vector3 {
	return geom.Vector3{X: v[0], Y: v[1], Z: v[2]}
}

func quatOf(v [4]float32) geom.Quaternion {
	return geom.Quaternion{X: v[0], Y: v[1], Z: v[2], W: v[3]}
}

func appendSamples[S, T any](tv *scene.TimeValues[T], times []float32, values []S, conv func(S) T) bool {
	if len(values) < len(times) {
		return false
	}
	tv.Times = append(tv.Times, times...)
	for i := range times {
		tv.Values = append(tv.Values, conv(values[i]))
	}
	return true
}

func (c *gltfToScene) importSkeletonAnimations() {
	if len(c.doc.Animations) == 0 {
		return
	}
	for si, skin := range c.doc.Skins {
		sk := c.s.Skeletons[si]
		sk.Animations = make([]*scene.SkeletonAnimation, len(c.s.AnimationTracks))
		for ti := range c.s.AnimationTracks {
			sk.Animations[ti] = c.buildSkeletonAnimation(skin, ti)
		}
	}
}

// buildSkeletonAnimation merges the independently sampled channels of
// every animated joint onto one definitive time axis and resamples
// each joint's transform components onto it.
func (c *gltfToScene) buildSkeletonAnimation(skin *gltf.Skin, trackIndex int) *scene.SkeletonAnimation {
	var animatedJoints []int
	timeSet := map[float32]bool{}
	for ji, j := range skin.Joints {
		anim := c.jointAnimation(int(j), trackIndex)
		if anim == nil {
			continue
		}
		animatedJoints = append(animatedJoints, ji)
		for _, t := range anim.Translations.Times {
			timeSet[t] = true
		}
		for _, t := range anim.Rotations.Times {
			timeSet[t] = true
		}
		for _, t := range anim.Scales.Times {
			timeSet[t] = true
		}
	}
	if len(animatedJoints) == 0 {
		return nil
	}
	times := make([]float32, 0, len(timeSet))
	for t := range timeSet {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	sa := &scene.SkeletonAnimation{
		Times:          times,
		AnimatedJoints: animatedJoints,
		Rotations:      make([][]geom.Quaternion, len(animatedJoints)),
		Translations:   make([][]geom.Vector3, len(animatedJoints)),
		Scales:         make([][]geom.Vector3, len(animatedJoints)),
	}
	for k, ji := range animatedJoints {
		jointIndex := int(skin.Joints[ji])
		node := c.s.Nodes[c.nodeMap[jointIndex]]
		anim := node.Animations[trackIndex]
		restT, restR, restS := nodeRest(node)
		sa.Translations[k] = resample(&anim.Translations, times, *restT, lerpVec3)
		sa.Rotations[k] = resample(&anim.Rotations, times, *restR, slerpQuat)
		sa.Scales[k] = resample(&anim.Scales, times, *restS, lerpVec3)
	}
	return sa
}

func (c *gltfToScene) jointAnimation(jointIndex, trackIndex int) *scene.NodeAnimation {
	if jointIndex >= len(c.doc.Nodes) {
		return nil
	}
	dstIndex, ok := c.nodeMap[jointIndex]
	if !ok {
		return nil
	}
	node := c.s.Nodes[dstIndex]
	if node.Animations == nil || node.Animations[trackIndex] == nil {
		return nil
	}
	anim := node.Animations[trackIndex]
	if anim.Translations.Len() == 0 && anim.Rotations.Len() == 0 && anim.Scales.Len() == 0 {
		return nil
	}
	return anim
}

func lerpVec3(a, b *geom.Vector3, t float32) geom.Vector3 {
	return *a.Lerp(b, t)
}

func slerpQuat(a, b *geom.Quaternion, t float32) geom.Quaternion {
	return *a.Slerp(b, t)
}

// resample interpolates one sampled channel onto the shared time axis.
// Channels with fewer than 2 samples broadcast the rest value.
func resample[T any](tv *scene.TimeValues[T], times []float32, rest T, interp func(a, b *T, t float32) T) []T {
	out := make([]T, len(times))
	if tv.Len() < 2 {
		for i := range out {
			out[i] = rest
		}
		return out
	}
	for i, t := range times {
		j := sort.Search(len(tv.Times), func(j int) bool { return tv.Times[j] >= t })
		switch {
		case j == 0:
			out[i] = tv.Values[0]
		case j >= len(tv.Times):
			out[i] = tv.Values[len(tv.Times)-1]
		default:
			t0, t1 := tv.Times[j-1], tv.Times[j]
			if t1 == t0 {
				out[i] = tv.Values[j]
				continue
			}
			out[i] = interp(&tv.Values[j-1], &tv.Values[j], (t-t0)/(t1-t0))
		}
	}
	return out
}
